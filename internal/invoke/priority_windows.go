//go:build windows

package invoke

// lowerPriority is a no-op on Windows; runs execute at default priority.
func lowerPriority(pid, nice int) error {
	return nil
}
