/*
Package dockerbisect provides a Go interface for finding the layers of a docker image which change the output of a command.

Jobs can most easily be created by passing in a job config to [GetJobFromConfig], but can also be created manually by populating a [Job] struct.
For a manually created job to work, at least the following fields have to be populated:
  - Image
  - Command, or Prober

After a job struct was acquired, the job can be started using [Job.Run].
Running a job probes the first and the last layer of the image which is present in the local cache.
If they produce the same output, no layer changed it. Otherwise the layers in between get bisected,
where independent ranges of layers are probed concurrently, until every layer at which the output changes is found.

Probing is done by a [Prober]. By default, a [DockerProber] is used, which runs the command in a fresh container of each probed layer.
Custom probers allow bisecting anything that can be expressed as an ordered list of layers with a deterministic output.
The bisection itself is available through [FindTransitions].

The result of a job can be printed with [WriteReport].
*/
package dockerbisect
