package input

// keyBytes maps a logical key name to the byte sequence a terminal
// application expects. Digits pass through as themselves.
func keyBytes(name string) ([]byte, bool) {
	switch name {
	case "up":
		return []byte{0x1b, '[', 'A'}, true
	case "down":
		return []byte{0x1b, '[', 'B'}, true
	case "right":
		return []byte{0x1b, '[', 'C'}, true
	case "left":
		return []byte{0x1b, '[', 'D'}, true
	case "enter":
		return []byte{'\r'}, true
	case "escape":
		return []byte{0x1b}, true
	case "tab":
		return []byte{'\t'}, true
	}
	if len(name) == 1 && name[0] >= '0' && name[0] <= '9' {
		return []byte{name[0]}, true
	}
	return nil, false
}
