package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BaSui01/crewflow/types"
	"gopkg.in/yaml.v3"
)

// CrewDefinition 是 crew 定义文件的类型化结构。
type CrewDefinition struct {
	Name        string            `yaml:"name"`
	Process     string            `yaml:"process"`
	MaxParallel int               `yaml:"max_parallel"`
	MaxRework   int               `yaml:"max_rework"`
	FinalTask   string            `yaml:"final_task"`
	ResultSink  string            `yaml:"result_sink"`
	Inputs      map[string]string `yaml:"inputs"`
	Knowledge   []KnowledgeSource `yaml:"knowledge"`
	Manager     *AgentDefinition  `yaml:"manager"`
	Agents      []AgentDefinition `yaml:"agents"`
	Tasks       []TaskDefinition  `yaml:"tasks"`
}

// KnowledgeSource 知识源: 名称与文件路径。
type KnowledgeSource struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// AgentDefinition 描述一个 agent。
type AgentDefinition struct {
	Name            string   `yaml:"name"`
	Role            string   `yaml:"role"`
	Goal            string   `yaml:"goal"`
	Backstory       string   `yaml:"backstory"`
	Capabilities    []string `yaml:"capabilities"`
	AllowDelegation bool     `yaml:"allow_delegation"`
}

// CallDefinition 描述一次能力调用。
type CallDefinition struct {
	Capability string            `yaml:"capability"`
	Args       map[string]string `yaml:"args"`
}

// TaskDefinition 描述一个任务。
type TaskDefinition struct {
	ID             string            `yaml:"id"`
	Description    string            `yaml:"description"`
	ExpectedOutput string            `yaml:"expected_output"`
	Agent          string            `yaml:"agent"`
	DependsOn      []string          `yaml:"depends_on"`
	Calls          []CallDefinition  `yaml:"calls"`
	OutputSink     string            `yaml:"output_sink"`
	ArchiveFolder  string            `yaml:"archive_folder"`
	Function       string            `yaml:"function"`
	FunctionArgs   map[string]string `yaml:"function_args"`
}

// LoadCrewDefinition 读取并解析 crew 定义文件。未知字段同样视为配置错误。
func LoadCrewDefinition(path string) (*CrewDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.Errorf(types.ErrConfiguration, "read crew definition %s", path).WithCause(err)
	}
	def, err := ParseCrewDefinition(data)
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		base := filepath.Base(path)
		def.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return def, def.Validate()
}

// ParseCrewDefinition 解析 YAML 内容, 不做结构校验。
func ParseCrewDefinition(data []byte) (*CrewDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def CrewDefinition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, types.NewError(types.ErrConfiguration, "crew definition is empty")
		}
		return nil, types.NewError(types.ErrConfiguration, "parse crew definition").WithCause(err)
	}
	return &def, nil
}

// Validate 做结构校验; 依赖图、能力与占位符由 crew.FromDefinition 校验。
func (d *CrewDefinition) Validate() error {
	var errs []string

	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, "name is required")
	}
	switch strings.ToLower(d.Process) {
	case "", "sequential", "hierarchical":
	default:
		errs = append(errs, "process must be sequential or hierarchical, got "+d.Process)
	}
	if d.MaxParallel < 0 {
		errs = append(errs, "max_parallel must not be negative")
	}
	if d.MaxRework < 0 {
		errs = append(errs, "max_rework must not be negative")
	}
	if strings.EqualFold(d.Process, "hierarchical") && d.Manager == nil {
		errs = append(errs, "hierarchical process requires a manager")
	}

	seenKnowledge := make(map[string]bool, len(d.Knowledge))
	for i, k := range d.Knowledge {
		if strings.TrimSpace(k.Path) == "" {
			errs = append(errs, "knowledge source #"+strconv.Itoa(i+1)+" needs a path")
			continue
		}
		if k.Name == "" {
			continue
		}
		if seenKnowledge[k.Name] {
			errs = append(errs, "duplicate knowledge source "+k.Name)
		}
		seenKnowledge[k.Name] = true
	}

	names := make(map[string]bool, len(d.Agents)+1)
	if d.Manager != nil {
		if d.Manager.Name == "" {
			errs = append(errs, "manager name is required")
		}
		names[d.Manager.Name] = true
	}
	for i, a := range d.Agents {
		if strings.TrimSpace(a.Name) == "" {
			errs = append(errs, "agent #"+strconv.Itoa(i+1)+" has no name")
			continue
		}
		if names[a.Name] {
			errs = append(errs, "duplicate agent "+a.Name)
		}
		names[a.Name] = true
	}

	if len(d.Tasks) == 0 {
		errs = append(errs, "at least one task is required")
	}
	for i, t := range d.Tasks {
		label := t.ID
		if strings.TrimSpace(label) == "" {
			errs = append(errs, "task #"+strconv.Itoa(i+1)+" has no id")
			label = "#" + strconv.Itoa(i+1)
		}
		if t.Function == "" {
			if t.Agent == "" {
				errs = append(errs, "task "+label+" needs an agent or a function")
			}
			if len(t.FunctionArgs) > 0 {
				errs = append(errs, "task "+label+" has function_args without a function")
			}
		} else if len(t.Calls) > 0 {
			errs = append(errs, "task "+label+" cannot combine a function with calls")
		}
		for j, c := range t.Calls {
			if strings.TrimSpace(c.Capability) == "" {
				errs = append(errs, "task "+label+" call #"+strconv.Itoa(j+1)+" has no capability")
			}
		}
	}

	if len(errs) > 0 {
		return types.Errorf(types.ErrConfiguration, "invalid crew definition %q: %s", d.Name, strings.Join(errs, "; "))
	}
	return nil
}
