package protocol

// ContainerState is the lifecycle state of a container.
type ContainerState string

const (
	ContainerNotCreated ContainerState = "not_created"
	ContainerCreated    ContainerState = "created"
	ContainerRunning    ContainerState = "running"
	ContainerStopping   ContainerState = "stopping"
	ContainerStopped    ContainerState = "stopped"
	ContainerDestroyed  ContainerState = "destroyed"
)

// Capability is one bit of the container capability set.
type Capability string

const (
	CapFilesystem     Capability = "FILESYSTEM"
	CapProcessControl Capability = "PROCESS_CONTROL"
	CapNetwork        Capability = "NETWORK"
	// CapUserNamespace requests an isolated user namespace with an
	// id mapping, established before any other namespace at creation.
	CapUserNamespace Capability = "USER_NAMESPACE"
)

// Mount describes one bind mount applied during container creation, in
// declaration order.
type Mount struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"read_only"`
}

// ContainerCreateRequest is the payload of [CmdContainerCreate].
type ContainerCreateRequest struct {
	ID           string       `json:"id"`
	Chroot       string       `json:"chroot"`
	Platform     string       `json:"platform"`
	Capabilities []Capability `json:"capabilities"`
	Mounts       []Mount      `json:"mounts"`
	ProfileBlob  []byte       `json:"profile_blob,omitempty"`
}

// ContainerCreateResult is the payload of a successful
// [CmdContainerCreate] response.
type ContainerCreateResult struct {
	ID string `json:"id"`
}

// ContainerSpawnRequest is the payload of [CmdContainerSpawn].
type ContainerSpawnRequest struct {
	ID      string   `json:"id"`
	Command []string `json:"command"`
	Env     []string `json:"env"`
	Workdir string   `json:"workdir"`
}

// ContainerSpawnResult is the payload of a successful [CmdContainerSpawn]
// response.
type ContainerSpawnResult struct {
	Pid      int    `json:"pid"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// ContainerUploadRequest is the payload of [CmdContainerUpload].
type ContainerUploadRequest struct {
	ID            string `json:"id"`
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
}

// ContainerUpdateRequest is the payload of [CmdContainerUpdate]: it
// hot-swaps a running container's security profile without recreating
// it, re-deriving the BPF-LSM policy_map entries for its cgroup.
type ContainerUpdateRequest struct {
	ID          string `json:"id"`
	ProfileBlob []byte `json:"profile_blob"`
}

// ContainerIDRequest is the payload shared by [CmdContainerDestroy],
// [CmdContainerStop], and [CmdContainerStatus].
type ContainerIDRequest struct {
	ID string `json:"id"`
}

// ContainerStatusResult is the payload of a successful
// [CmdContainerStatus] response.
type ContainerStatusResult struct {
	State ContainerState `json:"state"`
}

// StatusResult is the payload of a successful [CmdStatus] response.
type StatusResult struct {
	Running  bool   `json:"running"`
	Version  string `json:"version"`
	Pid      int    `json:"pid"`
	Uptime   string `json:"uptime"`
	Commands int    `json:"commands"`
}

// TransactionKind tags what a served transaction is doing.
type TransactionKind string

const (
	TxInstall TransactionKind = "INSTALL"
	TxVerify  TransactionKind = "VERIFY"
	TxRemove  TransactionKind = "REMOVE"
	TxBuild   TransactionKind = "BUILD"
)

// TransactionPhase is one state in a transaction's state machine.
type TransactionPhase string

const (
	PhaseInit     TransactionPhase = "INIT"
	PhaseDownload TransactionPhase = "DOWNLOAD"
	PhaseVerify   TransactionPhase = "VERIFY"
	PhaseApply    TransactionPhase = "APPLY"
	PhaseCommit   TransactionPhase = "COMMIT"
	PhaseDone     TransactionPhase = "DONE"
	PhaseFailed   TransactionPhase = "FAILED"
)

// InstallRequest is the payload of [CmdInstall].
type InstallRequest struct {
	Publisher string `json:"publisher"`
	Package   string `json:"package"`
	Channel   string `json:"channel"`
	Platform  string `json:"platform"`
	Arch      string `json:"arch"`
}

// RemoveRequest is the payload of [CmdRemove].
type RemoveRequest struct {
	Publisher string `json:"publisher"`
	Package   string `json:"package"`
}

// TransactionResult is the payload of a successful [CmdInstall] or
// [CmdRemove] response.
type TransactionResult struct {
	ID    string           `json:"id"`
	Phase TransactionPhase `json:"phase"`
}

// GetCommandRequest is the payload of [CmdGetCommand]: the wrapper binary
// asks served to resolve the command it was invoked as.
type GetCommandRequest struct {
	InvokedPath string `json:"invoked_path"`
}

// CommandRecord is the payload of a successful [CmdGetCommand] response:
// everything serve-exec needs to join the owning container and exec the
// command.
type CommandRecord struct {
	ContainerID string   `json:"container_id"`
	Path        string   `json:"path"`
	Args        []string `json:"args"`
	Cwd         string   `json:"cwd"`
}

// IOProgressEvent is emitted by served during download/verify/apply,
// throttled to ≥5 percentage-point deltas.
type IOProgressEvent struct {
	ID            string           `json:"id"`
	State         TransactionPhase `json:"state"`
	BytesCurrent  int64            `json:"bytes_current"`
	BytesTotal    int64            `json:"bytes_total"`
	Percentage    int              `json:"percentage"`
}

// AddressType enumerates the socket families a server can listen on.
type AddressType string

const (
	AddressLocal AddressType = "local"
	AddressInet4 AddressType = "inet4"
	AddressInet6 AddressType = "inet6"
)

// Address names a listen/dial endpoint. A [AddressLocal] value starting
// with "@" is an abstract Linux socket; other local values are filesystem
// paths and must stay within the platform's socket path length limit.
type Address struct {
	Type  AddressType `json:"type"`
	Value string      `json:"value"`
}
