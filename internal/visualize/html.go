package visualize

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/starford/othala/internal/lineage"
)

// htmlNode is the per-node record embedded in the page as JSON and
// rendered client-side.
type htmlNode struct {
	ID           string            `json:"id"`
	Label        string            `json:"label"`
	Metadata     map[string]string `json:"metadata"`
	Predecessors []string          `json:"predecessors"`
	Successors   []string          `json:"successors"`
	IsRoot       bool              `json:"isRoot"`
	IsLeaf       bool              `json:"isLeaf"`
	InCycle      bool              `json:"inCycle"`
}

// htmlEdge is the per-edge record embedded in the page as JSON.
type htmlEdge struct {
	From    string `json:"from"`
	To      string `json:"to"`
	InCycle bool   `json:"inCycle"`
}

type htmlPage struct {
	NodeCount   int
	RootCount   int
	LeafCount   int
	Cycles      []string
	BrokenLinks []string
	NodesJSON   template.JS
	EdgesJSON   template.JS
}

func (p htmlPage) HasIssues() bool {
	return len(p.Cycles) > 0 || len(p.BrokenLinks) > 0
}

var htmlTmpl = template.Must(template.New("lineage").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Lineage Graph</title>
<style>
body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 20px; background: #f5f5f5; }
.container { max-width: 1200px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
.stats { background: #f9f9f9; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
.stats div { display: inline-block; margin-right: 20px; }
.graph { border: 1px solid #ddd; border-radius: 5px; padding: 20px; min-height: 200px; }
.node { display: inline-block; padding: 10px 15px; margin: 5px; border-radius: 5px; border: 2px solid #333; background: #f0f0f0; cursor: pointer; transition: all 0.2s; }
.node:hover { transform: scale(1.05); box-shadow: 0 2px 8px rgba(0,0,0,0.2); }
.node.root { background: #90ee90; }
.node.leaf { background: #add8e6; }
.node.cycle { background: #ffb347; border-color: #ff6347; }
.metadata { font-size: 0.85em; color: #666; margin-top: 5px; }
.issues { background: #fff3cd; padding: 15px; border-radius: 5px; margin-top: 20px; border-left: 4px solid #ffc107; }
.legend { margin-top: 20px; padding: 15px; background: #f9f9f9; border-radius: 5px; }
.legend-item { display: inline-block; margin-right: 20px; }
.legend-color { display: inline-block; width: 20px; height: 20px; border-radius: 3px; border: 1px solid #333; margin-right: 5px; vertical-align: middle; }
</style>
</head>
<body>
<div class="container">
<h1>Lineage Graph</h1>
<div class="stats">
<div><strong>Nodes:</strong> {{.NodeCount}}</div>
<div><strong>Roots:</strong> {{.RootCount}}</div>
<div><strong>Leaves:</strong> {{.LeafCount}}</div>
<div><strong>Cycles:</strong> {{len .Cycles}}</div>
<div><strong>Broken Links:</strong> {{len .BrokenLinks}}</div>
</div>
<div class="graph" id="graph"></div>
{{if .HasIssues}}<div class="issues">
<h3>Issues Detected</h3>
{{if .Cycles}}<div><strong>Cycles:</strong></div><ul>{{range .Cycles}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .BrokenLinks}}<div><strong>Broken Links:</strong></div><ul>{{range .BrokenLinks}}<li>{{.}}</li>{{end}}</ul>{{end}}
</div>{{end}}
<div class="legend">
<h3>Legend</h3>
<div class="legend-item"><span class="legend-color" style="background: #90ee90;"></span> Root (no predecessors)</div>
<div class="legend-item"><span class="legend-color" style="background: #add8e6;"></span> Leaf (no successors)</div>
<div class="legend-item"><span class="legend-color" style="background: #ffb347;"></span> In cycle</div>
</div>
</div>
<script>
const nodes = {{.NodesJSON}};
const edges = {{.EdgesJSON}};

const graphDiv = document.getElementById('graph');
nodes.forEach(node => {
  const nodeDiv = document.createElement('div');
  nodeDiv.className = 'node';
  if (node.isRoot) nodeDiv.classList.add('root');
  if (node.isLeaf) nodeDiv.classList.add('leaf');
  if (node.inCycle) nodeDiv.classList.add('cycle');

  const title = document.createElement('strong');
  title.textContent = node.id;
  nodeDiv.appendChild(title);

  const addMeta = text => {
    const div = document.createElement('div');
    div.className = 'metadata';
    div.textContent = text;
    nodeDiv.appendChild(div);
  };
  if (node.metadata.version) addMeta('Version: ' + node.metadata.version);
  if (node.metadata.checksum) addMeta('Checksum: ' + node.metadata.checksum.substring(0, 12) + '...');
  if (node.predecessors.length > 0) addMeta('← ' + node.predecessors.length + ' predecessor(s)');
  if (node.successors.length > 0) addMeta('→ ' + node.successors.length + ' successor(s)');

  nodeDiv.title = JSON.stringify(node.metadata, null, 2);
  nodeDiv.addEventListener('click', () => {
    alert('Node: ' + node.id +
      '\n\nPredecessors: ' + (node.predecessors.join(', ') || 'None') +
      '\nSuccessors: ' + (node.successors.join(', ') || 'None') +
      '\n\nMetadata:\n' + JSON.stringify(node.metadata, null, 2));
  });
  graphDiv.appendChild(nodeDiv);
});
</script>
</body>
</html>
`))

// HTML renders the accumulated graph; see RenderHTML.
func (v *Visualizer) HTML() ([]byte, error) {
	return RenderHTML(v.graph)
}

// RenderHTML renders a self-contained interactive page: the node and
// edge arrays are embedded as JSON and rendered client-side, with the
// same root/leaf/cycle classification the DOT output uses. Summary
// stats and the issues section are rendered server-side.
func RenderHTML(g *lineage.Graph) ([]byte, error) {
	cycles := g.DetectCycles()
	broken := g.DetectBrokenLinks()

	var nodes []htmlNode
	var edges []htmlEdge
	for _, id := range g.NodeIDs() {
		n := g.Node(id)
		meta := n.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		nodes = append(nodes, htmlNode{
			ID:           id,
			Label:        id,
			Metadata:     meta,
			Predecessors: append([]string{}, n.Predecessors...),
			Successors:   append([]string{}, n.Successors...),
			IsRoot:       len(n.Predecessors) == 0,
			IsLeaf:       len(n.Successors) == 0,
			InCycle:      inCycle(id, cycles),
		})
		for _, succ := range n.Successors {
			edges = append(edges, htmlEdge{
				From:    id,
				To:      succ,
				InCycle: edgeInCycle(id, succ, cycles),
			})
		}
	}
	if nodes == nil {
		nodes = []htmlNode{}
	}
	if edges == nil {
		edges = []htmlEdge{}
	}

	nodesJSON, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("visualize: marshal nodes: %w", err)
	}
	edgesJSON, err := json.MarshalIndent(edges, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("visualize: marshal edges: %w", err)
	}

	page := htmlPage{
		NodeCount: g.Len(),
		RootCount: len(g.Roots()),
		LeafCount: len(g.Leaves()),
		NodesJSON: template.JS(nodesJSON),
		EdgesJSON: template.JS(edgesJSON),
	}
	for _, cycle := range cycles {
		page.Cycles = append(page.Cycles, strings.Join(cycle, " -> "))
	}
	for _, bl := range broken {
		page.BrokenLinks = append(page.BrokenLinks, fmt.Sprintf("%s -> %s", bl.From, bl.To))
	}

	var b strings.Builder
	if err := htmlTmpl.Execute(&b, page); err != nil {
		return nil, fmt.Errorf("visualize: render html: %w", err)
	}
	return []byte(b.String()), nil
}
