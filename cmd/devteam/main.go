// Command devteam runs a coordinator and its frontend and backend developers
// as a team that answers software requests.
package main

func main() {
	Execute()
}
