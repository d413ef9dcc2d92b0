package yamlfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DB reads the roster from a people file and, when AgentIDsFile is set, the
// agent id mapping from a second file.
//
//	# people.yml
//	people:
//	  - paul
//	  - david
//
//	# agent_ids.yml
//	id:
//	  Uweeuhdh123: paul
type DB struct {
	peopleFile   string
	agentIDsFile string
}

type Configuration struct {
	PeopleFile   string
	AgentIDsFile string
}

func NewDB(cfg Configuration) *DB {
	return &DB{
		peopleFile:   cfg.PeopleFile,
		agentIDsFile: cfg.AgentIDsFile,
	}
}

func (db *DB) GetPeople() ([]string, error) {
	data, err := readFile("people directory file", db.peopleFile)
	if err != nil {
		return nil, err
	}

	var doc struct {
		People []string `yaml:"people"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		// the legacy format is a bare list of names
		var list []string
		if listErr := yaml.Unmarshal(data, &list); listErr != nil {
			return nil, fmt.Errorf("could not parse %s: %w", db.peopleFile, err)
		}
		doc.People = list
	}

	var people []string
	for _, p := range doc.People {
		if p = strings.TrimSpace(p); p != "" {
			people = append(people, p)
		}
	}
	if len(people) == 0 {
		return nil, fmt.Errorf("no valid people found in %s", db.peopleFile)
	}

	return people, nil
}

func (db *DB) GetAgentIDs() (map[string]string, error) {
	if db.agentIDsFile == "" {
		return map[string]string{}, nil
	}

	data, err := readFile("agent id file", db.agentIDsFile)
	if err != nil {
		return nil, err
	}

	var doc struct {
		ID map[string]string `yaml:"id"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", db.agentIDsFile, err)
	}

	ids := make(map[string]string, len(doc.ID))
	for id, name := range doc.ID {
		if id = strings.TrimSpace(id); id != "" {
			ids[id] = name
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no valid id mapping found in %s", db.agentIDsFile)
	}

	return ids, nil
}

func readFile(what string, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s not found: %s", what, path)
		}
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	return data, nil
}
