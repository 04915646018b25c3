package core

// ParamGroup is one learning-rate bucket of the optimiser.
type ParamGroup struct {
	Name string  `json:"name"`
	LR   float64 `json:"lr"`
}

// OptimizerConfig holds the training hyperparameters that meta-adaptation
// acts on. Only the learning rates ever change during a session.
type OptimizerConfig struct {
	Algorithm string       `json:"algorithm"`
	Groups    []ParamGroup `json:"groups"`
}

// DefaultOptimizerConfig is Adam with a single group at lr=0.01.
func DefaultOptimizerConfig() *OptimizerConfig {
	return &OptimizerConfig{
		Algorithm: "adam",
		Groups:    []ParamGroup{{Name: "policy", LR: 0.01}},
	}
}

// LearningRates returns a copy of every group's learning rate, in order.
func (c *OptimizerConfig) LearningRates() []float64 {
	out := make([]float64, len(c.Groups))
	for i, g := range c.Groups {
		out[i] = g.LR
	}
	return out
}

// Clone returns a deep copy so sessions never share a configuration.
func (c *OptimizerConfig) Clone() *OptimizerConfig {
	groups := make([]ParamGroup, len(c.Groups))
	copy(groups, c.Groups)
	return &OptimizerConfig{Algorithm: c.Algorithm, Groups: groups}
}
