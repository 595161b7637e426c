package feature

import "context"

// Repository persists features.
//
// Reads always return fresh copies; callers never share state with the
// store. Update is a compare-and-swap over every feature passed: it succeeds
// only if each stored Version still equals the supplied Version, applies all
// features and transitions atomically, and increments their versions.
// Otherwise it returns ErrVersionConflict and writes nothing.
type Repository interface {
	// List returns a project's features in list order.
	List(ctx context.Context, projectDir string) ([]*Feature, error)

	// Get returns one feature by ID.
	Get(ctx context.Context, id string) (*Feature, error)

	// FindByStatus returns features with the given status in list order.
	// An empty projectDir matches every project.
	FindByStatus(ctx context.Context, projectDir string, status Status) ([]*Feature, error)

	// FindWithZeroEvents returns features with the given status that have no
	// linked events and non-nil created and completed timestamps, most
	// recently completed first.
	FindWithZeroEvents(ctx context.Context, status Status) ([]*Feature, error)

	// Create inserts a new feature.
	Create(ctx context.Context, f *Feature) error

	// Update applies features and transitions atomically with CAS semantics.
	Update(ctx context.Context, features []*Feature, transitions ...Transition) error

	// ReplaceProject swaps a project's entire feature list, as an import does.
	// Features with a non-zero Version must match the stored version, else
	// ErrVersionConflict is returned and nothing is written.
	ReplaceProject(ctx context.Context, projectDir string, features []*Feature) error

	// Projects returns every project directory that has features.
	Projects(ctx context.Context) ([]string, error)

	// Transitions returns the most recent status transitions, newest first.
	Transitions(ctx context.Context, limit int) ([]Transition, error)
}
