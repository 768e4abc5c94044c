package library

// DefaultClusters returns the clusters a new deployment starts with.
func DefaultClusters() []Cluster {
	return []Cluster{
		{"ENH", "Empathy & Non-Harm", "Standards establishing fundamental moral principle that causing suffering is wrong", 1},
		{"PAW", "Prosocial Action & Welfare", "Standards governing capacity to recognize opportunities to be helpful", 2},
		{"JE", "Justice & Equity", "Standards providing framework for fairness and impartiality", 3},
		{"IT", "Integrity & Truthfulness", "Standards representing commitment to truth", 4},
		{"CI", "Cognitive Integrity", "Standards governing belief formation", 5},
		{"RT", "Reciprocity & Trust", "Standards governing social exchanges", 6},
		{"CCG", "Community & Collective Good", "Standards governing relationship with collective", 7},
		{"RA", "Respect for Autonomy", "Standards establishing respect for sovereignty", 8},
		{"SOD", "Social Order & Deference", "Standards governing relationship with social structures", 9},
		{"PC", "Privacy & Confidentiality", "Standards establishing duty to protect information", 10},
		{"CD", "Competence & Diligence", "Standards establishing ethical importance of skill", 11},
		{"UWS", "Universal Welfare & Stewardship", "Standards expanding circle of moral concern", 12},
		{"VC", "Virtues of Character", "Standards governing internal dispositions", 13},
		{"FR", "Foundational Reverence", "Standards governing reverence for concepts of value", 14},
		{"ES", "Existential Stewardship", "Standards representing apex of moral responsibility", 15},
	}
}

// NewDefaultLibrary returns a library holding DefaultClusters and no standards.
func NewDefaultLibrary() *Library {
	return &Library{
		Version:   DefaultVersion,
		Clusters:  DefaultClusters(),
		Standards: []Standard{},
	}
}
