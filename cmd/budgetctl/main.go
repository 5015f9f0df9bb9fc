// Command budgetctl administers a budgetbuddy deployment: schema
// migrations, one-off rollover sweeps, period inspection, account access
// and Google Sheets authorization.
package main

func main() {
	Execute()
}
