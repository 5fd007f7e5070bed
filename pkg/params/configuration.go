package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a single parameter value: a number, or a level for categorical parameters
type Value struct {
	Num   float64
	Level string
}

// NumValue wraps a numeric value
func NumValue(v float64) Value {
	return Value{Num: v}
}

// LevelValue wraps a categorical level
func LevelValue(level string) Value {
	return Value{Level: level}
}

// IsLevel reports whether the value is categorical
func (v Value) IsLevel() bool {
	return v.Level != ""
}

func (v Value) String() string {
	if v.IsLevel() {
		return v.Level
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

// Configuration is an immutable, ordered tuple of named parameter values
type Configuration struct {
	names  []string
	values []Value
}

// NewConfiguration copies names and values into a new configuration
func NewConfiguration(names []string, values []Value) (Configuration, error) {
	if len(names) != len(values) {
		return Configuration{}, fmt.Errorf("names and values differ in length: %d != %d", len(names), len(values))
	}
	cfg := Configuration{
		names:  make([]string, len(names)),
		values: make([]Value, len(values)),
	}
	copy(cfg.names, names)
	copy(cfg.values, values)
	return cfg, nil
}

// Len returns the number of values
func (c Configuration) Len() int {
	return len(c.values)
}

// IsZero reports whether the configuration is empty
func (c Configuration) IsZero() bool {
	return len(c.values) == 0
}

// Name returns the i-th parameter name
func (c Configuration) Name(i int) string {
	return c.names[i]
}

// Value returns the i-th value
func (c Configuration) Value(i int) Value {
	return c.values[i]
}

// Get looks a value up by parameter name
func (c Configuration) Get(name string) (Value, bool) {
	for i, n := range c.names {
		if n == name {
			return c.values[i], true
		}
	}
	return Value{}, false
}

// Float returns the numeric value of a parameter, or 0 when absent
func (c Configuration) Float(name string) float64 {
	v, _ := c.Get(name)
	return v.Num
}

// Level returns the categorical level of a parameter, or "" when absent
func (c Configuration) Level(name string) string {
	v, _ := c.Get(name)
	return v.Level
}

// Map returns the configuration as name -> float64|string
func (c Configuration) Map() map[string]any {
	m := make(map[string]any, len(c.values))
	for i, n := range c.names {
		if c.values[i].IsLevel() {
			m[n] = c.values[i].Level
		} else {
			m[n] = c.values[i].Num
		}
	}
	return m
}

// Key is a canonical identity string for the configuration
func (c Configuration) Key() string {
	var b strings.Builder
	for i, n := range c.names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(c.values[i].String())
	}
	return b.String()
}

// Equal reports whether two configurations hold identical values
func (c Configuration) Equal(other Configuration) bool {
	if len(c.values) != len(other.values) {
		return false
	}
	for i := range c.values {
		if c.names[i] != other.names[i] || c.values[i] != other.values[i] {
			return false
		}
	}
	return true
}

func (c Configuration) String() string {
	return "{" + c.Key() + "}"
}

// MarshalJSON writes the configuration as an object whose keys keep declaration order
func (c Configuration) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range c.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		var val []byte
		if c.values[i].IsLevel() {
			val, err = json.Marshal(c.values[i].Level)
		} else {
			val, err = json.Marshal(c.values[i].Num)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of name -> number|string, preserving key order
func (c *Configuration) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("configuration must be a JSON object")
	}
	var names []string
	var values []Value
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("configuration key must be a string")
		}
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return fmt.Errorf("configuration %s: %w", name, err)
			}
			values = append(values, NumValue(f))
		case string:
			values = append(values, LevelValue(v))
		default:
			return fmt.Errorf("configuration %s: unsupported value %v", name, tok)
		}
		names = append(names, name)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	c.names = names
	c.values = values
	return nil
}
