package domain

// StyleCommand is one plotting verb with its parameters, as listed in a
// layer catalog (e.g. {_verb: mcont, contour_shade: on}).
type StyleCommand struct {
	Verb   string
	Params map[string]any
}

// Style is a named rendering style advertised for a layer.
type Style struct {
	Name        string
	Title       string
	Description string
	Commands    []StyleCommand // Optional explicit plotting commands.
}

func findStyle(styles []Style, name string) (*Style, error) {
	if name == "" {
		if len(styles) == 0 {
			return nil, nil
		}
		return &styles[0], nil
	}
	for i := range styles {
		if styles[i].Name == name {
			return &styles[i], nil
		}
	}
	return nil, &StyleNotDefinedError{Name: name}
}
