package threads

import "sort"

// SubagentDescendantThreadIDs returns every descendant of rootThreadID that
// satisfies isSubagentThread, in breadth-first discovery order. Traversal
// continues through non-matching threads, since a human-continued thread can
// still have spawned sub-agents. Cycles terminate on the visited set.
//
// Siblings are visited in lexical id order; the parent map has no intrinsic
// ordering.
func SubagentDescendantThreadIDs(
	rootThreadID string,
	threadParentByID map[string]string,
	isSubagentThread func(threadID string) bool,
) []string {
	if rootThreadID == "" {
		return []string{}
	}

	children := make(map[string][]string)
	for childID, parentID := range threadParentByID {
		if childID == "" || parentID == "" || childID == parentID {
			continue
		}
		children[parentID] = append(children[parentID], childID)
	}
	for _, list := range children {
		sort.Strings(list)
	}

	visited := map[string]bool{rootThreadID: true}
	queue := append([]string(nil), children[rootThreadID]...)
	result := []string{}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		if isSubagentThread == nil || isSubagentThread(current) {
			result = append(result, current)
		}
		queue = append(queue, children[current]...)
	}
	return result
}
