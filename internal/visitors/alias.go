package visitors

import "hash/fnv"

var aliasAdjectives = []string{
	"Curious", "Happy", "Clever", "Wise", "Playful", "Brave", "Swift", "Gentle",
	"Bright", "Quiet", "Bold", "Nimble", "Cheerful", "Daring", "Eager", "Calm",
	"Lively", "Merry", "Patient", "Quick", "Radiant", "Sly", "Steady", "Vivid",
	"Witty", "Zesty", "Humble", "Keen", "Lucky", "Mellow", "Noble", "Peppy",
}

var aliasAnimals = []string{
	"Panda", "Fox", "Owl", "Otter", "Lion", "Eagle", "Deer", "Raven",
	"Beaver", "Koala", "Sloth", "Hamster", "Lynx", "Bear", "Penguin", "Heron",
	"Dolphin", "Whale", "Seal", "Crab", "Turtle", "Octopus", "Falcon", "Crane",
	"Badger", "Marten", "Stoat", "Wren", "Finch", "Moose", "Ibex", "Tapir",
}

// Alias returns a stable, human-friendly display name for a session hash so
// realtime dashboards can show activity without exposing the hash itself.
func Alias(hash string) string {
	h := fnv.New32a()
	h.Write([]byte(hash))
	index := int(h.Sum32())

	adj := aliasAdjectives[index%len(aliasAdjectives)]
	animal := aliasAnimals[(index/len(aliasAdjectives))%len(aliasAnimals)]
	return adj + " " + animal
}
