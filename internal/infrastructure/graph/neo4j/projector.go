package neo4j

import (
	"context"
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/care-assistant/internal/core/domain"
	"github.com/kirillkom/care-assistant/internal/core/ports"
)

var _ ports.GraphProjector = (*Projector)(nil)

var nodeLabels = map[domain.NodeKind]string{
	domain.NodeCall:        "Call",
	domain.NodeTriage:      "Triage",
	domain.NodeAppointment: "Appointment",
}

var edgeTypes = map[domain.EdgeKind]struct {
	rel      string
	from, to domain.NodeKind
}{
	domain.EdgeCallTriage:        {rel: "TRIAGED_AS", from: domain.NodeCall, to: domain.NodeTriage},
	domain.EdgeTriageAppointment: {rel: "LED_TO", from: domain.NodeTriage, to: domain.NodeAppointment},
	domain.EdgeCallAppointment:   {rel: "BOOKED", from: domain.NodeCall, to: domain.NodeAppointment},
}

type statement struct {
	cypher string
	params map[string]any
}

type runFunc func(ctx context.Context, cypher string, params map[string]any) error

// Projector mirrors the command centre graph into Neo4j with idempotent
// MERGE statements.
type Projector struct {
	driver neo4j.DriverWithContext
	run    runFunc
}

func NewProjector(ctx context.Context, uri, user, password, database string) (*Projector, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	p := &Projector{driver: driver}
	p.run = func(ctx context.Context, cypher string, params map[string]any) error {
		_, err := neo4j.ExecuteQuery(ctx, driver, cypher, params,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(database),
		)
		return err
	}
	return p, nil
}

func (p *Projector) Close(ctx context.Context) error {
	if p.driver == nil {
		return nil
	}
	return p.driver.Close(ctx)
}

func (p *Projector) Project(ctx context.Context, view *domain.CommandCentreView) error {
	if view == nil {
		return nil
	}
	for _, st := range projectionStatements(view) {
		if err := p.run(ctx, st.cypher, st.params); err != nil {
			return fmt.Errorf("neo4j project: %w", err)
		}
	}
	return nil
}

// projectionStatements batches nodes per label and edges per relationship
// type, in a stable order.
func projectionStatements(view *domain.CommandCentreView) []statement {
	nodesByKind := make(map[domain.NodeKind][]any)
	for _, node := range view.Nodes {
		if _, ok := nodeLabels[node.Kind]; !ok {
			continue
		}
		props := make(map[string]any, len(node.Attributes)+1)
		for k, v := range node.Attributes {
			props[k] = v
		}
		props["label"] = node.Label
		nodesByKind[node.Kind] = append(nodesByKind[node.Kind], map[string]any{"id": node.ID, "props": props})
	}

	edgesByKind := make(map[domain.EdgeKind][]any)
	for _, edge := range view.Edges {
		if _, ok := edgeTypes[edge.Kind]; !ok {
			continue
		}
		edgesByKind[edge.Kind] = append(edgesByKind[edge.Kind], map[string]any{"from": edge.From, "to": edge.To})
	}

	out := make([]statement, 0, len(nodesByKind)+len(edgesByKind))
	for _, kind := range sortedKeys(nodesByKind) {
		out = append(out, statement{
			cypher: fmt.Sprintf("UNWIND $rows AS row MERGE (n:%s {id: row.id}) SET n += row.props", nodeLabels[kind]),
			params: map[string]any{"rows": nodesByKind[kind]},
		})
	}
	for _, kind := range sortedKeys(edgesByKind) {
		et := edgeTypes[kind]
		out = append(out, statement{
			cypher: fmt.Sprintf(
				"UNWIND $rows AS row MATCH (a:%s {id: row.from}) MATCH (b:%s {id: row.to}) MERGE (a)-[:%s]->(b)",
				nodeLabels[et.from], nodeLabels[et.to], et.rel,
			),
			params: map[string]any{"rows": edgesByKind[kind]},
		})
	}
	return out
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
