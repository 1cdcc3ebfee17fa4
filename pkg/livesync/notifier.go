package livesync

// Notifier is told when stored data changes so observers can be refreshed.
// Calls never block on observers.
type Notifier interface {
	// AccountChanged marks one account as changed
	AccountChanged(email string)
	// OrdersChanged marks the orders owned by email as changed; "" means every owner
	OrdersChanged(email string)
	CatalogChanged()
	ConfigChanged()
}

// NopNotifier discards every change notification
type NopNotifier struct{}

func (NopNotifier) AccountChanged(string) {}
func (NopNotifier) OrdersChanged(string)  {}
func (NopNotifier) CatalogChanged()       {}
func (NopNotifier) ConfigChanged()        {}

// Fanout forwards notifications to several notifiers
type Fanout []Notifier

func (f Fanout) AccountChanged(email string) {
	for _, n := range f {
		n.AccountChanged(email)
	}
}

func (f Fanout) OrdersChanged(email string) {
	for _, n := range f {
		n.OrdersChanged(email)
	}
}

func (f Fanout) CatalogChanged() {
	for _, n := range f {
		n.CatalogChanged()
	}
}

func (f Fanout) ConfigChanged() {
	for _, n := range f {
		n.ConfigChanged()
	}
}
