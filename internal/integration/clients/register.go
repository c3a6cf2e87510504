package clients

import "loanflow/internal/integration"

// RegisterAll wires every built-in client into the registry. Called once at
// startup; registry conflicts panic there rather than surfacing mid-run.
func RegisterAll(r *integration.Registry) {
	r.MustRegister(KeyBureau, NewBureau)
	r.MustRegister(KeyBlacklist, NewBlacklist)
	r.MustRegister(KeyCitizen, NewCitizen)
	r.MustRegister(KeyBiometric, NewBiometric)
	r.MustRegister(KeyBanking, NewBanking)
}
