package transform

import (
	"fmt"
	"sort"

	"github.com/flint-ml/flint/internal/tree"
)

// argSelection is a validated choice of which arguments of a call
// participate in differentiation: sorted unique positional indices and a set
// of keyword names.
type argSelection struct {
	argnums  []int
	argnames map[string]bool
}

// gradOptions collects the Grad/ValueAndGrad configuration.
type gradOptions struct {
	argnums    []int
	argnumsSet bool
	argnames   []string
}

// GradOption configures Grad and ValueAndGrad.
type GradOption func(*gradOptions)

// WithArgnums selects the positional argument indices to differentiate with
// respect to. Without it (and without WithArgnames) the first positional
// argument is selected.
func WithArgnums(nums ...int) GradOption {
	return func(o *gradOptions) {
		o.argnums = nums
		o.argnumsSet = true
	}
}

// WithArgnames selects keyword arguments to differentiate with respect to.
func WithArgnames(names ...string) GradOption {
	return func(o *gradOptions) {
		o.argnames = append(o.argnames, names...)
	}
}

// resolveArgSelection validates and canonicalizes an argument selection.
func resolveArgSelection(o gradOptions) (argSelection, error) {
	names := make(map[string]bool, len(o.argnames))
	for _, n := range o.argnames {
		names[n] = true
	}

	var nums []int
	if !o.argnumsSet {
		if len(names) == 0 {
			nums = []int{0}
		}
	} else {
		nums = append(nums, o.argnums...)
	}

	if len(nums) == 0 && len(names) == 0 {
		return argSelection{}, fmt.Errorf("%w: gradient wrt no argument requested", ErrInvalidArgument)
	}

	sort.Ints(nums)
	if len(nums) > 0 && nums[0] < 0 {
		return argSelection{}, fmt.Errorf("%w: can't compute the gradient of negative argument index %d", ErrInvalidArgument, nums[0])
	}
	for i := 1; i < len(nums); i++ {
		if nums[i] == nums[i-1] {
			return argSelection{}, fmt.Errorf("%w: duplicate argument index %d is not allowed", ErrInvalidArgument, nums[i])
		}
	}
	return argSelection{argnums: nums, argnames: names}, nil
}

// validateCall checks the selection against the arguments actually supplied.
func (s argSelection) validateCall(args []*tree.Node, kwargs map[string]*tree.Node) error {
	if len(s.argnums) > 0 && s.argnums[len(s.argnums)-1] >= len(args) {
		return fmt.Errorf(
			"%w: can't compute the gradient of argument index %d because the function is called with only %d positional arguments",
			ErrInvalidArgument, s.argnums[len(s.argnums)-1], len(args))
	}
	for name := range s.argnames {
		if _, ok := kwargs[name]; !ok {
			return fmt.Errorf(
				"%w: can't compute the gradient of keyword argument %q because the function is called with keyword arguments %v",
				ErrInvalidArgument, name, sortedKeys(kwargs))
		}
	}
	return nil
}
