// Package permission evaluates role permission trees. It is a client side hint
// for what to show; the API remains the authority on what is allowed.
//
// A permission is granted when any node carrying its id is checked. Each node is
// judged on its own flag: a checked parent says nothing about its children.
package permission

import (
	"iter"
	"slices"
)

// Node is one entry of a permission tree.
type Node struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Checked  bool   `json:"checked"`
	Children []Node `json:"children,omitempty"`
}

// HasPermission reports whether a checked node with id exists anywhere in tree.
// The depth first walk stops at the first checked match.
func HasPermission(id string, tree []Node) bool {
	for n := range walk(tree) {
		if n.ID == id && n.Checked {
			return true
		}
	}
	return false
}

// HasAnyPermission is false for an empty id list.
func HasAnyPermission(ids []string, tree []Node) bool {
	return slices.ContainsFunc(ids, func(id string) bool {
		return HasPermission(id, tree)
	})
}

// HasAllPermissions is true for an empty id list.
func HasAllPermissions(ids []string, tree []Node) bool {
	for _, id := range ids {
		if !HasPermission(id, tree) {
			return false
		}
	}
	return true
}

// Checked yields the ids of checked nodes in depth first order.
func Checked(tree []Node) iter.Seq[string] {
	return func(yield func(string) bool) {
		for n := range walk(tree) {
			if n.Checked && !yield(n.ID) {
				return
			}
		}
	}
}

// CheckedPermissions collects Checked into a slice.
func CheckedPermissions(tree []Node) []string {
	return slices.Collect(Checked(tree))
}

// CheckWithAdminBypass grants everything to admins.
func CheckWithAdminBypass(id string, tree []Node, isAdmin bool) bool {
	return isAdmin || HasPermission(id, tree)
}

// walk yields nodes in pre-order using an explicit stack.
func walk(tree []Node) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		stack := make([]*Node, 0, len(tree))
		for i := len(tree) - 1; i >= 0; i-- {
			stack = append(stack, &tree[i])
		}

		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if !yield(n) {
				return
			}

			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, &n.Children[i])
			}
		}
	}
}
