package main

import "incidentrag/internal/app"

func main() {
	app.Main()
}
