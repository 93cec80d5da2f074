// Command hostwatch is a terminal dashboard for local host telemetry.
package main

func main() {
	Execute()
}
