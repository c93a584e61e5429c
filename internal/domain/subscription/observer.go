package subscription

// Observer receives domain measurements. internal/utils/metrics implements it with
// prometheus collectors.
type Observer interface {
	TransitionCompleted(operation, result string)
	VersionConflict(operation string)
	PlanCacheLookup(hit bool)
	UsageLookupFailed(reason string)
	ProrationComputed(currency string, amount float64)
	SweepCompleted(result string, count int)
}

type nopObserver struct{}

func (nopObserver) TransitionCompleted(string, string) {}
func (nopObserver) VersionConflict(string) {}
func (nopObserver) PlanCacheLookup(bool) {}
func (nopObserver) UsageLookupFailed(string) {}
func (nopObserver) ProrationComputed(string, float64) {}
func (nopObserver) SweepCompleted(string, int) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
