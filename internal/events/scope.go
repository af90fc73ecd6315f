package events

// Scoped publishes FetchingStarted, runs fn and publishes FetchingEnded on
// every exit path, panics included, before handing fn's result back.
func Scoped(pub Publisher, fn func() error) error {
	pub.Publish(FetchingStarted, Payload{})
	defer pub.Publish(FetchingEnded, Payload{})
	return fn()
}
