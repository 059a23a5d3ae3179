package search

import (
	"unicode/utf8"

	"github.com/feiju-bot/feiju/internal/domain"
)

// trieNode is one rune step in a context's name trie.
type trieNode struct {
	children map[rune]*trieNode
	terminal bool
	library  domain.LibraryID
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[rune]*trieNode)}
}

func (n *trieNode) insert(name string, id domain.LibraryID) {
	node := n
	for _, r := range name {
		child, ok := node.children[r]
		if !ok {
			child = newTrieNode()
			node.children[r] = child
		}
		node = child
	}
	node.terminal = true
	node.library = id
}

// remove unmarks name and prunes branches left without names.
// It reports whether name was present.
func (n *trieNode) remove(name string) bool {
	type step struct {
		parent *trieNode
		r      rune
	}
	var path []step

	node := n
	for _, r := range name {
		child, ok := node.children[r]
		if !ok {
			return false
		}
		path = append(path, step{parent: node, r: r})
		node = child
	}
	if !node.terminal {
		return false
	}
	node.terminal = false
	node.library = 0

	for i := len(path) - 1; i >= 0; i-- {
		child := path[i].parent.children[path[i].r]
		if child.terminal || len(child.children) > 0 {
			break
		}
		delete(path[i].parent.children, path[i].r)
	}
	return true
}

// Match is a registered name found as a prefix of trigger text.
type Match struct {
	Name    string
	Library domain.LibraryID
}

// prefixes walks text and returns every registered name that is a prefix
// of it, longest first.
func (n *trieNode) prefixes(text string) []Match {
	var matches []Match
	node := n
	for end := 0; end < len(text); {
		r, size := utf8.DecodeRuneInString(text[end:])
		child, ok := node.children[r]
		if !ok {
			break
		}
		node = child
		end += size
		if node.terminal {
			matches = append(matches, Match{Name: text[:end], Library: node.library})
		}
	}
	for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
		matches[i], matches[j] = matches[j], matches[i]
	}
	return matches
}

func (n *trieNode) empty() bool {
	return !n.terminal && len(n.children) == 0
}
