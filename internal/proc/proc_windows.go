//go:build windows

package proc

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

func parentTable() (map[int]int, error) {
	return nil, errors.ErrUnsupported
}

func processCwd(int) (string, error) {
	return "", errors.ErrUnsupported
}

// Descendant discovery is delegated to taskkill /T on Windows.
func killAll(root int, _ []int) error {
	out, err := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(root)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("proc: taskkill %d: %w: %s", root, err, out)
	}
	return nil
}
