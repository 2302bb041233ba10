package challenge

import "hash/fnv"

// seedNamespace keeps daily seeds apart from any other FNV use of the date.
const seedNamespace = "GRIDLE|"

// Seed hashes a date string with 32-bit FNV-1a.
func Seed(date string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seedNamespace + date))
	return h.Sum32()
}
