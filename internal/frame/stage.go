package frame

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stage is one named transformation in an ordered sequence. Requires is
// checked before Apply runs and Produces after it returns.
type Stage struct {
	Name     string
	Requires []string
	Produces []string
	Apply    func(*Frame) (*Frame, error)
}

// Run applies stages in order and stops at the first failure.
func Run(f *Frame, log *logrus.Entry, stages ...Stage) (*Frame, error) {
	for _, s := range stages {
		if err := f.Require(s.Name, s.Requires...); err != nil {
			return nil, err
		}

		before := f.Len()
		out, err := s.Apply(f)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s", s.Name)
		}
		if err := out.Require(s.Name, s.Produces...); err != nil {
			return nil, err
		}

		if log != nil {
			log.WithFields(logrus.Fields{
				"step":        s.Name,
				"rows_before": before,
				"rows_after":  out.Len(),
			}).Debug("Stage applied")
		}
		f = out
	}
	return f, nil
}
