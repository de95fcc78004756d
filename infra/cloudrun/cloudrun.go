package cloudrun

import (
	"fmt"
	"strconv"

	"github.com/pulumi/pulumi-docker/sdk/v4/go/docker"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/cloudrun"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/projects"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/serviceaccount"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"

	"github.com/GregMSThompson/moneyloop/infra/common"
	"github.com/GregMSThompson/moneyloop/infra/secret"
)

// secretEnv maps container env var names to Secret Manager secret ids.
type secretEnv map[string]pulumi.StringOutput

func SetupCloudRun(ctx *pulumi.Context,
	prov *gcp.Provider,
	apiSA *serviceaccount.Account,
	kmsKeyName pulumi.StringOutput,
	res ...pulumi.Resource) (pulumi.StringOutput, error) {
	empty := pulumi.String("").ToStringOutput()

	img, err := buildApiImage(ctx, res...)
	if err != nil {
		return empty, err
	}

	secrets, err := createSecrets(ctx)
	if err != nil {
		return empty, err
	}

	srv, err := enableCloudRun(ctx, prov)
	if err != nil {
		return empty, err
	}

	svc, err := createCloudRunService(ctx, img, apiSA, kmsKeyName, secrets, prov, append(res, srv)...)
	if err != nil {
		return empty, err
	}

	err = setIAMAccessPolicy(ctx, svc, prov)
	if err != nil {
		return empty, err
	}

	return svc.Statuses.Index(pulumi.Int(0)).Url().Elem(), nil
}

func buildApiImage(ctx *pulumi.Context, res ...pulumi.Resource) (*docker.Image, error) {
	gcpCfg := config.New(ctx, "gcp")
	projectID := gcpCfg.Require("project")
	region := gcpCfg.Require("region")

	hash, err := common.SourceHash("..")
	if err != nil {
		return nil, err
	}

	return docker.NewImage(ctx, "apiImage", &docker.ImageArgs{
		Build: docker.DockerBuildArgs{
			Platform:   pulumi.String("linux/amd64"),
			Context:    pulumi.String(".."),                    // build from repo root
			Dockerfile: pulumi.String("../cmd/api/Dockerfile"), // Dockerfile path relative to repo root
		},
		ImageName: pulumi.String(fmt.Sprintf("%s-docker.pkg.dev/%s/api/moneyloop-api:%s", region, projectID, hash)),
	},
		pulumi.DependsOn(res),
	)
}

func enableCloudRun(ctx *pulumi.Context, prov *gcp.Provider) (*projects.Service, error) {
	return projects.NewService(ctx, "cloudRunService", &projects.ServiceArgs{
		Service: pulumi.String("run.googleapis.com"),
	},
		pulumi.Provider(prov),
	)
}

func CreateServiceAccount(ctx *pulumi.Context, prov *gcp.Provider) (*serviceaccount.Account, error) {
	return serviceaccount.NewAccount(ctx, "apiServiceAccount", &serviceaccount.AccountArgs{
		AccountId:   pulumi.String("moneyloop-api"),
		DisplayName: pulumi.String("MoneyLoop API Service Account"),
	},
		pulumi.Provider(prov),
	)
}

func createCloudRunService(ctx *pulumi.Context,
	img *docker.Image,
	apiSA *serviceaccount.Account,
	kmsKeyName pulumi.StringOutput,
	secrets secretEnv,
	prov *gcp.Provider,
	res ...pulumi.Resource) (*cloudrun.Service, error) {
	gcpCfg := config.New(ctx, "gcp")
	crCfg := config.New(ctx, "cloudrun")
	plaidCfg := config.New(ctx, "plaid")
	appCfg := config.New(ctx, "moneyloop")

	projectID := gcpCfg.Require("project")
	region := gcpCfg.Require("region")
	minScale := crCfg.Require("minScale")
	maxScale := crCfg.Require("maxScale")
	cpu := crCfg.Require("cpu")
	memory := crCfg.Require("memory")
	concurrency := crCfg.Require("concurrency")
	logLevel := crCfg.Require("logLevel")
	timeout, _ := strconv.Atoi(crCfg.Require("timeout"))
	plaidEnv := plaidCfg.Require("environment")
	corsOrigins := appCfg.Require("corsOrigins")

	envs := cloudrun.ServiceTemplateSpecContainerEnvArray{
		plainEnv("GCP_PROJECT_ID", pulumi.String(projectID)),
		plainEnv("LOG_LEVEL", pulumi.String(logLevel)),
		plainEnv("PLAID_ENV", pulumi.String(plaidEnv)),
		plainEnv("CORS_ORIGINS", pulumi.String(corsOrigins)),
		plainEnv("KMS_KEY_NAME", kmsKeyName),
	}
	for _, name := range []string{"PLAID_CLIENT_ID", "PLAID_SECRET", "SUPABASE_JWT_SECRET", "DATABASE_URL"} {
		envs = append(envs, &cloudrun.ServiceTemplateSpecContainerEnvArgs{
			Name: pulumi.String(name),
			ValueFrom: &cloudrun.ServiceTemplateSpecContainerEnvValueFromArgs{
				SecretKeyRef: &cloudrun.ServiceTemplateSpecContainerEnvValueFromSecretKeyRefArgs{
					Name: secrets[name],
					Key:  pulumi.String("latest"),
				},
			},
		})
	}

	return cloudrun.NewService(ctx, "apiService", &cloudrun.ServiceArgs{
		Location: pulumi.String(region),

		Template: &cloudrun.ServiceTemplateArgs{

			Metadata: &cloudrun.ServiceTemplateMetadataArgs{
				Annotations: pulumi.StringMap{
					// Autoscaling bounds
					"autoscaling.knative.dev/minScale": pulumi.String(minScale),
					"autoscaling.knative.dev/maxScale": pulumi.String(maxScale),

					// Instance sizing
					"run.googleapis.com/cpu":    pulumi.String(cpu),
					"run.googleapis.com/memory": pulumi.String(memory),

					// Allow throttling when idle (reduces cost)
					"run.googleapis.com/cpu-throttling": pulumi.String("true"),

					// Set the number of concurrent requests per container
					"run.googleapis.com/container-concurrency": pulumi.String(concurrency),
				},
			},

			Spec: &cloudrun.ServiceTemplateSpecArgs{
				ServiceAccountName: apiSA.Email,
				TimeoutSeconds:     pulumi.Int(timeout),

				Containers: cloudrun.ServiceTemplateSpecContainerArray{
					&cloudrun.ServiceTemplateSpecContainerArgs{
						Image: img.ImageName,
						Ports: cloudrun.ServiceTemplateSpecContainerPortArray{
							&cloudrun.ServiceTemplateSpecContainerPortArgs{
								ContainerPort: pulumi.Int(8080),
							},
						},
						Envs: envs,
					},
				},
			},
		},
	},
		pulumi.Provider(prov),
		pulumi.DependsOn(res),
	)
}

func plainEnv(name string, value pulumi.StringInput) *cloudrun.ServiceTemplateSpecContainerEnvArgs {
	return &cloudrun.ServiceTemplateSpecContainerEnvArgs{
		Name:  pulumi.String(name),
		Value: value,
	}
}

func setIAMAccessPolicy(ctx *pulumi.Context, svc *cloudrun.Service, prov *gcp.Provider) error {
	gcpCfg := config.New(ctx, "gcp")
	region := gcpCfg.Require("region")

	_, err := cloudrun.NewIamMember(ctx, "publicInvoker", &cloudrun.IamMemberArgs{
		Service:  svc.Name,
		Location: pulumi.String(region),
		Role:     pulumi.String("roles/run.invoker"),

		// Sessions are checked in the app against the Supabase JWT secret
		Member: pulumi.String("allUsers"),
	},
		pulumi.Provider(prov),
	)
	return err
}

func createSecrets(ctx *pulumi.Context) (secretEnv, error) {
	plaidCfg := config.New(ctx, "plaid")
	supabaseCfg := config.New(ctx, "supabase")

	values := []struct {
		env, resource, id string
		value             pulumi.StringOutput
	}{
		{"PLAID_CLIENT_ID", "plaidClientIdSecret", "plaid-client-id", plaidCfg.RequireSecret("clientId")},
		{"PLAID_SECRET", "plaidSecretSecret", "plaid-secret", plaidCfg.RequireSecret("secret")},
		{"SUPABASE_JWT_SECRET", "supabaseJwtSecret", "supabase-jwt-secret", supabaseCfg.RequireSecret("jwtSecret")},
		{"DATABASE_URL", "databaseUrlSecret", "database-url", supabaseCfg.RequireSecret("databaseUrl")},
	}

	out := secretEnv{}
	for _, v := range values {
		name, err := secret.AddSecret(ctx, v.resource, v.id, v.value)
		if err != nil {
			return nil, err
		}
		out[v.env] = name
	}
	return out, nil
}
