// Package classifier talks to the image inference service.
package classifier

import (
	"context"
	"errors"
)

// FilenameKey is the prediction field naming the classified file.
const FilenameKey = "filename"

// Prediction is one inference result. It always carries FilenameKey; every
// other field is passed through to clients untouched.
type Prediction map[string]any

// Filename returns the path the prediction refers to.
func (p Prediction) Filename() string {
	name, _ := p[FilenameKey].(string)
	return name
}

// WithoutFilename returns a copy of p minus FilenameKey.
func (p Prediction) WithoutFilename() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if k == FilenameKey {
			continue
		}
		out[k] = v
	}
	return out
}

// Classifier classifies image files that exist on a shared filesystem.
type Classifier interface {
	Classify(ctx context.Context, paths []string) ([]Prediction, error)
}

// ErrUnavailable is returned when no inference backend is configured.
var ErrUnavailable = errors.New("classifier unavailable")

// Disabled is a Classifier that always fails with ErrUnavailable.
type Disabled struct{}

func (Disabled) Classify(context.Context, []string) ([]Prediction, error) {
	return nil, ErrUnavailable
}
