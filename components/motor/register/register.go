// Package register registers all relevant motor backends.
package register

import (
	// for motor backends.
	_ "github.com/team3128/motorhal/components/motor/dimensionengineering"
	_ "github.com/team3128/motorhal/components/motor/fake"
)
