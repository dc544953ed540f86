package config

import (
	"strconv"
	"time"

	"github.com/juju/errors"
)

// Duration wrapper
type Duration struct {
	time.Duration
}

// UnmarshalText implement time.ParseDuration function for Duration
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.Trace(err)
}

// UnmarshalJSON accepts either a duration string or a bare number of
// seconds, which is what hand-written JSON configs tend to carry.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if n, err := strconv.Atoi(string(b)); err == nil {
		d.Duration = time.Duration(n) * time.Second
		return nil
	}
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return errors.Trace(err)
	}
	d.Duration, err = time.ParseDuration(s)
	return errors.Trace(err)
}
