package main

// makefile runner
func main() {
	bindVar()
	executeCalibration()
}
