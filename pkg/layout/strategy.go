package layout

import (
	"context"
	"fmt"
	"time"
)

// Strategy is one step of the fallback cascade. Engine names the layout
// the surface has to provide; Settle is how long post-layout actions wait
// for the animated transition to finish.
type Strategy struct {
	Name    string
	Engine  string
	Settle  time.Duration
	Options func(focalID string) Options
}

// Attempt runs the strategy on the surface. A missing engine yields
// ErrStrategyUnavailable and a panicking surface is turned into an error.
func (s Strategy) Attempt(ctx context.Context, surface Surface, focalID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s layout panicked: %v", s.Name, r)
		}
	}()

	if !surface.Available(s.Engine) {
		return fmt.Errorf("%s (%s): %w", s.Name, s.Engine, ErrStrategyUnavailable)
	}

	var opts Options
	if s.Options != nil {
		opts = s.Options(focalID)
	}
	if opts.Name == "" {
		opts.Name = s.Engine
	}
	if err := surface.ApplyLayout(ctx, s.Engine, opts); err != nil {
		return fmt.Errorf("%s layout: %w", s.Name, err)
	}
	return nil
}

// Hierarchical lays generations out top to bottom with the dagre engine.
func Hierarchical() Strategy {
	return Strategy{
		Name:   "hierarchical",
		Engine: "dagre",
		Settle: 900 * time.Millisecond,
		Options: func(string) Options {
			return Options{
				Name:                        "dagre",
				RankDir:                     "TB",
				SpacingFactor:               1.5,
				NodeDimensionsIncludeLabels: true,
				Animate:                     true,
				AnimationDuration:           800,
				Fit:                         true,
				Padding:                     50,
				RankSep:                     100,
				NodeSep:                     80,
				EdgeSep:                     20,
			}
		},
	}
}

// BreadthFirst spreads the graph out from the focal node.
func BreadthFirst() Strategy {
	return Strategy{
		Name:   "breadthFirst",
		Engine: "breadthfirst",
		Settle: 900 * time.Millisecond,
		Options: func(focalID string) Options {
			return Options{
				Name:                        "breadthfirst",
				Directed:                    true,
				Roots:                       "#" + focalID,
				SpacingFactor:               2,
				Animate:                     true,
				AnimationDuration:           800,
				Fit:                         true,
				Padding:                     50,
				AvoidOverlap:                true,
				NodeDimensionsIncludeLabels: true,
			}
		},
	}
}

// Grid is the last regular strategy; every surface is expected to have it.
func Grid() Strategy {
	return Strategy{
		Name:   "grid",
		Engine: "grid",
		Settle: 600 * time.Millisecond,
		Options: func(string) Options {
			return Options{
				Name:              "grid",
				Fit:               true,
				Padding:           50,
				AvoidOverlap:      true,
				Animate:           true,
				AnimationDuration: 500,
			}
		},
	}
}

// DefaultCascade returns hierarchical, breadthFirst and grid in that order.
func DefaultCascade() []Strategy {
	return []Strategy{Hierarchical(), BreadthFirst(), Grid()}
}
