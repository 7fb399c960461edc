package similarity

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrInvalidParameter = errors.New("invalid similarity parameter")
	ErrNoTermStatistics = errors.New("no term statistics")
	ErrUnknownModel     = errors.New("unknown similarity model")
)

// ConfigError reports a model parameter outside its valid range.
type ConfigError struct {
	Model string
	Param string
	Value float32
	Range string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: illegal %s value: %s, must be %s",
		e.Model, e.Param, strconv.FormatFloat(float64(e.Value), 'g', -1, 32), e.Range)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidParameter
}
