package mcpserver

// SidecarFormatContract documents the sidecar and frontmatter checksum
// conventions for every vault artifact. It is served both as an MCP
// resource and through the get_sidecar_contract tool so that agents
// writing artifacts produce files the vault can verify.
const SidecarFormatContract = `# Othala Sidecar Format Contract

Every vault artifact MAY carry its integrity metadata in two places:
an embedded frontmatter field (markdown artifacts only) and a sidecar
JSON file next to the artifact.

## Sidecar file

The sidecar lives at "<artifact path>.sidecar.json":

    widget.md            <- artifact
    widget.md.sidecar.json  <- sidecar

Shape:

    {
      "vault_id": "vault://Demo/Widget/v1.0",
      "checksum_sha256": "<64 hex chars>",
      "version": "1.0.0",
      "timestamp": "2026-01-15T09:30:00Z",
      "lineage": {
        "predecessors": ["vault://Demo/Widget/v0.9"],
        "successors": []
      }
    }

Rules:

- "checksum_sha256" is the SHA-256 of the artifact content. For
  markdown files the frontmatter block (the leading "---" fenced
  section) is stripped before hashing, so embedding the checksum does
  not change it.
- "lineage.predecessors" and "lineage.successors" hold vault ids of
  related artifacts. Either list may be empty or omitted.
- Unknown fields are preserved verbatim by all vault tooling; it is
  safe to attach extra metadata.

## Frontmatter field (markdown artifacts)

Markdown artifacts may also embed the checksum in their frontmatter:

    ---
    title: Widget
    checksum_sha256: <64 hex chars>
    ---

The placeholder value "pending" means "not yet computed" and is
treated as absent by drift checks. Use it when creating a new artifact
before the first reconcile pass.

## Vault identifiers

Vault ids follow "vault://Domain/Resource/vMAJOR.MINOR", for example
"vault://Demo/Widget/v1.0". Ids outside the vault:// scheme are
accepted as opaque keys, but the structured form is preferred because
it sorts and groups naturally.
`
