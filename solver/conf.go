package solver

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/plaans/aries-sub004/stn"
)

// Tuning knobs read from the environment, with in-code defaults. Parsing
// failures fall back to the default with a warning rather than aborting.

// Conf gathers the tunable parameters of a solver.
type Conf struct {
	// branching polarity: set variables to their minimal value first
	PreferMinValue bool
	// conflicts allowed before the first restart
	InitiallyAllowedConflicts uint64
	// geometric growth of the restart budget
	IncreaseRatioForAllowedConflicts float64
	// completeness level of difference-logic theory propagation
	TheoryPropagation stn.TheoryPropagationLevel
	// dump the domains after the initial propagation
	PrintInitialPropagation bool
}

// DefaultConf returns the built-in defaults, ignoring the environment.
func DefaultConf() Conf {
	return Conf{
		PreferMinValue:                   true,
		InitiallyAllowedConflicts:        100,
		IncreaseRatioForAllowedConflicts: 1.5,
		TheoryPropagation:                stn.TheoryPropagationFull,
		PrintInitialPropagation:          false,
	}
}

// ConfFromEnv reads the configuration from the environment:
// PREFER_MIN_VALUE, INITIALLY_ALLOWED_CONFLICTS,
// INCREASE_RATIO_FOR_ALLOWED_CONFLICTS, THEORY_PROPAGATION,
// PRINT_INITIAL_PROPAGATION.
func ConfFromEnv(log *logrus.Entry) Conf {
	c := DefaultConf()
	c.PreferMinValue = boolEnv(log, "PREFER_MIN_VALUE", c.PreferMinValue)
	c.InitiallyAllowedConflicts = uintEnv(log, "INITIALLY_ALLOWED_CONFLICTS", c.InitiallyAllowedConflicts)
	c.IncreaseRatioForAllowedConflicts = floatEnv(log, "INCREASE_RATIO_FOR_ALLOWED_CONFLICTS", c.IncreaseRatioForAllowedConflicts)
	if s, ok := os.LookupEnv("THEORY_PROPAGATION"); ok {
		lvl, err := stn.ParseTheoryPropagationLevel(s)
		if err != nil {
			log.WithField("value", s).Warn("invalid THEORY_PROPAGATION, using default")
		} else {
			c.TheoryPropagation = lvl
		}
	}
	c.PrintInitialPropagation = boolEnv(log, "PRINT_INITIAL_PROPAGATION", c.PrintInitialPropagation)
	return c
}

func boolEnv(log *logrus.Entry, name string, def bool) bool {
	s, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		log.WithField("value", s).Warnf("invalid %s, using default", name)
		return def
	}
	return v
}

func uintEnv(log *logrus.Entry, name string, def uint64) uint64 {
	s, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		log.WithField("value", s).Warnf("invalid %s, using default", name)
		return def
	}
	return v
}

func floatEnv(log *logrus.Entry, name string, def float64) float64 {
	s, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.WithField("value", s).Warnf("invalid %s, using default", name)
		return def
	}
	return v
}
