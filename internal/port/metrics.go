package port

type Metrics interface {
	ObserveAvailability(available bool)
	ObserveDecrement(outcome string)
	ObserveDepleted(count int)
}
