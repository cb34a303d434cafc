package index

// ArtifactIndex defines the interface for artifact index operations.
// Consumers should depend on this interface rather than the concrete
// *DB type to facilitate testing with mocks.
type ArtifactIndex interface {
	UpsertArtifact(row ArtifactRow, predecessor, successor string) error
	DeleteArtifact(vaultID string) error
	GetArtifact(vaultID string) (*ArtifactRow, error)
	FindByPath(filePath string) (*ArtifactRow, error)
	ListArtifacts(limit, offset int) ([]ArtifactRow, int, error)
	GetChecksum(vaultID string) (string, error)
	AllChecksums() (map[string]string, error)
	SetCurrentChecksum(vaultID, checksum string) error
	Drifted() ([]ArtifactRow, error)
	Predecessors(vaultID string) ([]string, error)
	Successors(vaultID string) ([]string, error)
	Graph() ([]GraphNode, []GraphLink, error)
	Close() error
}

// Verify *DB satisfies ArtifactIndex at compile time.
var _ ArtifactIndex = (*DB)(nil)
