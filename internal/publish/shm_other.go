//go:build !unix

package publish

import "fmt"

func openSHM(path string) (Publisher, error) {
	return nil, fmt.Errorf("shm backend unsupported on this platform")
}

func subscribeSHM(path string) (Subscriber, error) {
	return nil, fmt.Errorf("shm backend unsupported on this platform")
}
