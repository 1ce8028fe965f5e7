package utils

// SafeGo runs fn in a new goroutine and reports a recovered panic to onPanic.
func SafeGo(onPanic func(any), fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil && onPanic != nil {
				onPanic(r)
			}
		}()
		fn()
	}()
}
