// cmd/tracker/main.go
package main

func main() {
	Execute()
}
