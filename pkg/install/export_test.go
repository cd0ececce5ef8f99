package install

func MockGeteuid(f func() int) (restore func()) {
	saved := geteuid
	geteuid = f
	return func() {
		geteuid = saved
	}
}
