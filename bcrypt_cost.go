//go:build !race

package admin

func passwordHashCost() int {
	// 10 keeps interactive logins responsive while resisting offline brute
	// force.
	return 10
}
