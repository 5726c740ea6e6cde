package cache

import "fmt"

const KeyPrefix = "transitcat:"

func KeySnapshot(name string) string {
	return fmt.Sprintf("snapshot:%s", name)
}
