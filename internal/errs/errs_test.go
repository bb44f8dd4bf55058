package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("%w: shared config missing", ErrConfig), "config"},
		{fmt.Errorf("place bet: %w", fmt.Errorf("%w: timeout", ErrExternal)), "external"},
		{fmt.Errorf("%w: unknown verb", ErrCommand), "command"},
		{fmt.Errorf("%w: dirty tree", ErrUpdate), "update"},
		{fmt.Errorf("%w: lock timeout", ErrStorage), "storage"},
		{errors.New("boom"), "internal"},
	}
	for _, c := range cases {
		if got := Kind(c.err); got != c.want {
			t.Errorf("Kind(%v)=%q want=%q", c.err, got, c.want)
		}
	}
}
