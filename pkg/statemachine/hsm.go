package statemachine

// getAncestors 获取状态的所有祖先（包括自己），由内向外
func getAncestors[C any](n *StateNode[C]) []*StateNode[C] {
	ancestors := []*StateNode[C]{n}
	for current := n.parent; current != nil; current = current.parent {
		ancestors = append(ancestors, current)
	}
	return ancestors
}

// pathOf 返回从根到该状态的路径
func pathOf[C any](n *StateNode[C]) []*StateNode[C] {
	ancestors := getAncestors(n)
	for i, j := 0, len(ancestors)-1; i < j; i, j = i+1, j-1 {
		ancestors[i], ancestors[j] = ancestors[j], ancestors[i]
	}
	return ancestors
}

// isDescendant n 是否为 ancestor 的后代（含自身）
func isDescendant[C any](n, ancestor *StateNode[C]) bool {
	for current := n; current != nil; current = current.parent {
		if current == ancestor {
			return true
		}
	}
	return false
}

// transitionDomain 返回转换的作用域：目标的严格祖先中，同时包含当前叶子的最近一个
// 作用域本身既不退出也不进入
func transitionDomain[C any](leaf, target *StateNode[C]) *StateNode[C] {
	for current := target.parent; current != nil; current = current.parent {
		if isDescendant(leaf, current) {
			return current
		}
	}
	return nil
}

// getExitPath 获取退出路径：从叶子向外直到作用域（不含）
func getExitPath[C any](leaf, domain *StateNode[C]) []*StateNode[C] {
	var exits []*StateNode[C]
	for current := leaf; current != nil && current != domain; current = current.parent {
		exits = append(exits, current)
	}
	return exits
}

// getEnterPath 获取进入路径：从作用域（不含）向内到目标，再沿初始子状态下降到叶子
func getEnterPath[C any](domain, target *StateNode[C]) []*StateNode[C] {
	var enters []*StateNode[C]
	for current := target; current != nil && current != domain; current = current.parent {
		enters = append(enters, current)
	}
	for i, j := 0, len(enters)-1; i < j; i, j = i+1, j-1 {
		enters[i], enters[j] = enters[j], enters[i]
	}
	for current := target; current.initial != nil; current = current.initial {
		enters = append(enters, current.initial)
	}
	return enters
}
