// Package main provides the entry point for the qprovider CLI.
//
// qprovider submits OpenQASM 2.0 circuits to Quantinuum trapped-ion
// machines and emulators, waits for the results and keeps a local job
// history.
//
// Usage:
//
//	qprovider account save --user alice@example.com
//	qprovider backends
//	qprovider run H1-1E bell.qasm --shots 100
//
// See --help for all available options.
package main

func main() {
	Execute()
}
