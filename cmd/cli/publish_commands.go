package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/temirov/clawaudit/internal/notify"
	"github.com/temirov/clawaudit/internal/patch"
	"github.com/temirov/clawaudit/internal/remediation"
	"github.com/temirov/clawaudit/internal/scan"
)

const (
	remediateCommandUseConstant           = "remediate"
	remediateCommandShortDescriptionConst = "Open a pull request replacing one file with patched code"
	remediateCommandLongDescriptionConst  = "remediate creates a branch from the default branch, commits the patched file and opens a pull request. The patch comes from --patch-file or from the patched code section of an audit report given with --report-file."
	devUpdateCommandUseConstant           = "dev-update"
	devUpdateCommandShortDescriptionConst = "Send a message to the developer Telegram channel"
	configCommandUseConstant              = "config"
	configCommandShortDescriptionConstant = "Inspect the effective configuration"
	configShowCommandUseConstant          = "show"
	configShowCommandShortDescriptionCons = "Print the effective configuration as YAML with secrets redacted"
	flagRepositoryNameConstant            = "repo"
	flagRepositoryDescriptionConstant     = "Target repository as owner/name or a GitHub URL"
	flagPathNameConstant                  = "path"
	flagPathDescriptionConstant           = "Repository path of the file to replace"
	flagPatchFileNameConstant             = "patch-file"
	flagPatchFileDescriptionConstant      = "File holding the complete patched source"
	flagReportFileNameConstant            = "report-file"
	flagReportFileDescriptionConstant     = "Audit report whose patched code section supplies the patch"
	flagTitleNameConstant                 = "title"
	flagTitleDescriptionConstant          = "Pull request or message title"
	flagBodyNameConstant                  = "body"
	flagBodyDescriptionConstant           = "Pull request body"
	flagTokenNameConstant                 = "token"
	flagTokenDescriptionConstant          = "GitHub token for this request only"
	flagDeleteBranchNameConstant          = "delete-branch-on-missing-file"
	flagDeleteBranchDescriptionConstant   = "Delete the created branch when the target file does not exist"
	flagContentNameConstant               = "content"
	flagContentDescriptionConstant        = "Message content"
	patchSourceConflictMessageConstant    = "use either --patch-file or --report-file"
	patchSourceMissingMessageConstant     = "--patch-file or --report-file is required"
	reportWithoutPatchMessageConstant     = "report contains no patched code section"
	patchReadErrorTemplateConstant        = "unable to read %s: %w"
	remediateErrorTemplateConstant        = "remediation failed: %w"
	devUpdateErrorTemplateConstant        = "developer update failed: %w"
)

var (
	errPatchSourceConflict = errors.New(patchSourceConflictMessageConstant)
	errPatchSourceMissing  = errors.New(patchSourceMissingMessageConstant)
	errReportWithoutPatch  = errors.New(reportWithoutPatchMessageConstant)
)

// RemediateCommandBuilder assembles the remediate command.
type RemediateCommandBuilder struct {
	Services ServiceAccess
}

// Build constructs the remediate command.
func (builder *RemediateCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   remediateCommandUseConstant,
		Short: remediateCommandShortDescriptionConst,
		Long:  remediateCommandLongDescriptionConst,
		RunE:  builder.run,
	}
	command.Flags().String(flagRepositoryNameConstant, "", flagRepositoryDescriptionConstant)
	command.Flags().String(flagPathNameConstant, "", flagPathDescriptionConstant)
	command.Flags().String(flagPatchFileNameConstant, "", flagPatchFileDescriptionConstant)
	command.Flags().String(flagReportFileNameConstant, "", flagReportFileDescriptionConstant)
	command.Flags().String(flagTitleNameConstant, "", flagTitleDescriptionConstant)
	command.Flags().String(flagBodyNameConstant, "", flagBodyDescriptionConstant)
	command.Flags().String(flagTokenNameConstant, "", flagTokenDescriptionConstant)
	command.Flags().Bool(flagDeleteBranchNameConstant, false, flagDeleteBranchDescriptionConstant)
	return command, nil
}

func (builder *RemediateCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}
	patchedCode, patchError := builder.readPatch(command)
	if patchError != nil {
		return patchError
	}
	repository, _ := command.Flags().GetString(flagRepositoryNameConstant)
	filePath, _ := command.Flags().GetString(flagPathNameConstant)
	title, _ := command.Flags().GetString(flagTitleNameConstant)
	body, _ := command.Flags().GetString(flagBodyNameConstant)
	token, _ := command.Flags().GetString(flagTokenNameConstant)
	deleteBranch, _ := command.Flags().GetBool(flagDeleteBranchNameConstant)

	runtime, runtimeError := builder.Services.resolveRuntime(command.Context())
	if runtimeError != nil {
		return runtimeError
	}
	pullRequest, publishError := runtime.Publisher.CreatePullRequest(command.Context(), remediation.Request{
		Repository:                repository,
		FilePath:                  filePath,
		PatchedCode:               patchedCode,
		Title:                     title,
		Body:                      body,
		Token:                     token,
		DeleteBranchOnMissingFile: deleteBranch,
	})
	if publishError != nil {
		return fmt.Errorf(remediateErrorTemplateConstant, publishError)
	}
	return writeJSON(command.OutOrStdout(), pullRequest)
}

func (builder *RemediateCommandBuilder) readPatch(command *cobra.Command) (string, error) {
	patchFile, _ := command.Flags().GetString(flagPatchFileNameConstant)
	reportFile, _ := command.Flags().GetString(flagReportFileNameConstant)
	patchFile = strings.TrimSpace(patchFile)
	reportFile = strings.TrimSpace(reportFile)

	switch {
	case len(patchFile) > 0 && len(reportFile) > 0:
		return "", errPatchSourceConflict
	case len(patchFile) > 0:
		contents, readError := commandPathExpander.ReadFile(patchFile)
		if readError != nil {
			return "", fmt.Errorf(patchReadErrorTemplateConstant, patchFile, readError)
		}
		return string(contents), nil
	case len(reportFile) > 0:
		contents, readError := commandPathExpander.ReadFile(reportFile)
		if readError != nil {
			return "", fmt.Errorf(patchReadErrorTemplateConstant, reportFile, readError)
		}
		patchedCode, found := patch.Extract(string(contents))
		if !found {
			return "", errReportWithoutPatch
		}
		return patchedCode, nil
	default:
		return "", errPatchSourceMissing
	}
}

// DevUpdateCommandBuilder assembles the dev-update command.
type DevUpdateCommandBuilder struct {
	Services ServiceAccess
}

// Build constructs the dev-update command.
func (builder *DevUpdateCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   devUpdateCommandUseConstant,
		Short: devUpdateCommandShortDescriptionConst,
		RunE:  builder.run,
	}
	command.Flags().String(flagTitleNameConstant, "", flagTitleDescriptionConstant)
	command.Flags().String(flagContentNameConstant, "", flagContentDescriptionConstant)
	return command, nil
}

func (builder *DevUpdateCommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}
	title, _ := command.Flags().GetString(flagTitleNameConstant)
	content, _ := command.Flags().GetString(flagContentNameConstant)
	if len(strings.TrimSpace(content)) == 0 {
		return notify.ErrContentRequired
	}

	runtime, runtimeError := builder.Services.resolveRuntime(command.Context())
	if runtimeError != nil {
		return runtimeError
	}
	if runtime.DeveloperSender == nil {
		return scan.ConfigurationError{Missing: []string{scan.MissingTelegramToken, scan.MissingTelegramChatID}}
	}
	if sendError := runtime.DeveloperSender.Send(command.Context(), notify.Message{Title: title, Content: content}); sendError != nil {
		return fmt.Errorf(devUpdateErrorTemplateConstant, sendError)
	}
	return nil
}

// ConfigCommandBuilder assembles the config command group.
type ConfigCommandBuilder struct {
	Services ServiceAccess
}

// Build constructs the config command and its show subcommand.
func (builder *ConfigCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   configCommandUseConstant,
		Short: configCommandShortDescriptionConstant,
	}
	command.AddCommand(&cobra.Command{
		Use:   configShowCommandUseConstant,
		Short: configShowCommandShortDescriptionCons,
		RunE:  builder.runShow,
	})
	return command, nil
}

func (builder *ConfigCommandBuilder) runShow(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}
	encoder := yaml.NewEncoder(command.OutOrStdout())
	encoder.SetIndent(2)
	if encodeError := encoder.Encode(builder.Services.resolveConfiguration().redacted()); encodeError != nil {
		return encodeError
	}
	return encoder.Close()
}
