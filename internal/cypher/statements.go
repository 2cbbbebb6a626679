package cypher

import (
	"fmt"

	"github.com/roach88/graphgate/internal/graph"
)

// Fixed statements used by the entity layer. Each takes the tenant label
// (empty for none), which is applied to every node pattern so one tenant
// can never read or write another tenant's entities.
//
// Parameters:
//
//	$id     entity identity
//	$props  property map (SET n += $props merges; null values remove)
//	$start  start node identity
//	$end    end node identity

// NodeByID fetches one node.
func NodeByID(tenant string) string {
	return fmt.Sprintf("MATCH (n%s) WHERE id(n) = $id RETURN n", Labels(tenant))
}

// RelationshipByID fetches one relationship.
func RelationshipByID(tenant string) string {
	return fmt.Sprintf("MATCH (s%s)-[r]->(t%s) WHERE id(r) = $id RETURN r",
		Labels(tenant), Labels(tenant))
}

// SetNodeProperties merges $props into one node.
func SetNodeProperties(tenant string) string {
	return fmt.Sprintf("MATCH (n%s) WHERE id(n) = $id SET n += $props", Labels(tenant))
}

// SetRelationshipProperties merges $props into one relationship.
func SetRelationshipProperties(tenant string) string {
	return fmt.Sprintf("MATCH (s%s)-[r]->(t%s) WHERE id(r) = $id SET r += $props",
		Labels(tenant), Labels(tenant))
}

// DeleteNode deletes one node. With detach, its relationships go with it;
// without, the database refuses to delete a connected node.
func DeleteNode(tenant string, detach bool) string {
	verb := "DELETE"
	if detach {
		verb = "DETACH DELETE"
	}
	return fmt.Sprintf("MATCH (n%s) WHERE id(n) = $id %s n", Labels(tenant), verb)
}

// DeleteRelationship deletes one relationship.
func DeleteRelationship(tenant string) string {
	return fmt.Sprintf("MATCH (s%s)-[r]->(t%s) WHERE id(r) = $id DELETE r",
		Labels(tenant), Labels(tenant))
}

// CreateNode creates a node with labels plus the tenant label.
func CreateNode(tenant string, labels []string) string {
	all := append(append([]string(nil), labels...), tenant)
	return fmt.Sprintf("CREATE (n%s) SET n = $props RETURN n", Labels(all...))
}

// CreateRelationship creates a relationship of relType between two existing
// nodes of the tenant.
func CreateRelationship(tenant, relType string) string {
	return fmt.Sprintf(
		"MATCH (s%s), (t%s) WHERE id(s) = $start AND id(t) = $end CREATE (s)-[r:%s]->(t) SET r = $props RETURN r",
		Labels(tenant), Labels(tenant), Quote(relType))
}

// Adjacent fetches the relationships of node $id in dir, optionally limited
// to relType.
func Adjacent(tenant string, dir graph.Direction, relType string) string {
	rel := "[r]"
	if relType != "" {
		rel = "[r:" + Quote(relType) + "]"
	}

	var pattern string
	switch dir {
	case graph.DirectionOutgoing:
		pattern = fmt.Sprintf("(n%s)-%s->(m%s)", Labels(tenant), rel, Labels(tenant))
	case graph.DirectionIncoming:
		pattern = fmt.Sprintf("(n%s)<-%s-(m%s)", Labels(tenant), rel, Labels(tenant))
	default:
		pattern = fmt.Sprintf("(n%s)-%s-(m%s)", Labels(tenant), rel, Labels(tenant))
	}
	return fmt.Sprintf("MATCH %s WHERE id(n) = $id RETURN DISTINCT r ORDER BY id(r)", pattern)
}
