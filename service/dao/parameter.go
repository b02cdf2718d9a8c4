package dao

// Parameter is a named List filter; Value is a string or []string.
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter creates a filter matching any of values.
func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// Matches reports whether value satisfies the parameter.
func (p *Parameter) Matches(value string) bool {
	switch actual := p.Value.(type) {
	case string:
		return actual == value
	case []string:
		for _, candidate := range actual {
			if candidate == value {
				return true
			}
		}
		return false
	}
	return true
}

// Lookup returns the first parameter with name, or nil.
func Lookup(name string, parameters []*Parameter) *Parameter {
	for _, parameter := range parameters {
		if parameter != nil && parameter.Name == name {
			return parameter
		}
	}
	return nil
}
