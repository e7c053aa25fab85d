package stage

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(id ID) Health {
	return Health{Name: string(id), Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(id ID, detail string) Health {
	return Health{Name: string(id), Ready: false, Detail: detail}
}
